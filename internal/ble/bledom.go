// Package ble drives a BLEDOM LED strip over Bluetooth Low Energy. The
// agent can mirror one DMX fixture onto such a strip, which is handy for
// a monitor light on the operator desk.
package ble

import (
	"context"
	"log"
	"time"

	"golang.org/x/time/rate"
	"tinygo.org/x/bluetooth"
)

var (
	adapter = bluetooth.DefaultAdapter

	defaultServiceUUIDStr        = "0000fff0-0000-1000-8000-00805f9b34fb"
	defaultCharacteristicUUIDStr = "0000fff3-0000-1000-8000-00805f9b34fb"
)

// Controller manages the BLE connection and command writes.
type Controller struct {
	characteristic bluetooth.DeviceCharacteristic
	heartbeatChar  bluetooth.DeviceCharacteristic

	// disconnectChan carries the "connection is gone" signal from the
	// writer loop to the connection loop. Buffered so senders never block.
	disconnectChan chan struct{}

	commandChan chan []byte

	deviceNames        []string
	serviceUUID        bluetooth.UUID
	characteristicUUID bluetooth.UUID
	scanTimeout        time.Duration
	connectTimeout     time.Duration
	heartbeatInterval  time.Duration
	retryDelay         time.Duration
	commandLimiter     *rate.Limiter
}

// NewController creates a BLE controller and starts its writer loop.
func NewController(ctx context.Context, deviceNames []string, scanTimeout, connectTimeout, heartbeatInterval, retryDelay time.Duration, rateLimit float64, rateBurst int) *Controller {
	serviceUUID, _ := bluetooth.ParseUUID(defaultServiceUUIDStr)
	characteristicUUID, _ := bluetooth.ParseUUID(defaultCharacteristicUUIDStr)

	c := &Controller{
		deviceNames:        deviceNames,
		serviceUUID:        serviceUUID,
		characteristicUUID: characteristicUUID,
		scanTimeout:        scanTimeout,
		connectTimeout:     connectTimeout,
		heartbeatInterval:  heartbeatInterval,
		retryDelay:         retryDelay,
		commandChan:        make(chan []byte, rateBurst*2),
		disconnectChan:     make(chan struct{}, 1),
		commandLimiter:     rate.NewLimiter(rate.Limit(rateLimit), rateBurst),
	}

	go c.commandWriterLoop(ctx)
	return c
}

// Write queues a raw command. Drops when the queue is full so the frame
// path never blocks on Bluetooth.
func (c *Controller) Write(payload []byte) {
	select {
	case c.commandChan <- payload:
	default:
		log.Printf("[BLE] Command queue full, dropping command: %x", payload)
	}
}

// commandWriterLoop drains the queue at the configured rate.
func (c *Controller) commandWriterLoop(ctx context.Context) {
	log.Println("[BLE] Command writer loop started.")
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-c.commandChan:
			if err := c.commandLimiter.Wait(ctx); err != nil {
				return
			}

			if c.characteristic.UUID() == (bluetooth.UUID{}) {
				// Not connected yet, skip silently.
				continue
			}

			_, err := c.characteristic.WriteWithoutResponse(payload)
			if err != nil {
				log.Printf("[BLE] Write failed (assuming disconnected): %v", err)
				c.signalDisconnect()
			}
		}
	}
}

func (c *Controller) signalDisconnect() {
	select {
	case c.disconnectChan <- struct{}{}:
	default:
	}
}

func contains(s []string, str string) bool {
	for _, v := range s {
		if v == str {
			return true
		}
	}
	return false
}

// Run owns the scan/connect/heartbeat cycle and keeps retrying until the
// context is cancelled. onStatusChange fires on every connection change.
func (c *Controller) Run(ctx context.Context, onStatusChange func(connected bool, rssi int16)) {
	onStatusChange(false, 0)

	for {
		select {
		case <-ctx.Done():
			log.Println("[BLE] Controller shutting down.")
			return
		default:
			if err := adapter.Enable(); err != nil {
				log.Printf("[BLE] Failed to enable adapter: %v", err)
				time.Sleep(c.retryDelay)
				continue
			}

			// Drop any stale disconnect signal from the previous cycle.
			select {
			case <-c.disconnectChan:
			default:
			}

			c.characteristic = bluetooth.DeviceCharacteristic{}
			c.heartbeatChar = bluetooth.DeviceCharacteristic{}

			log.Println("[BLE] Scanning for BLEDOM device...")

			// A previous scan may still be active if it hung.
			adapter.StopScan()

			ch := make(chan bluetooth.ScanResult, 1)

			go func() {
				err := adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
					if contains(c.deviceNames, result.LocalName()) {
						adapter.StopScan()
						select {
						case ch <- result:
						default:
						}
					}
				})
				if err != nil {
					log.Printf("[BLE] Scan error: %v", err)
				}
			}()

			var deviceScanResult bluetooth.ScanResult

			scanCtx, cancelScan := context.WithTimeout(ctx, c.scanTimeout)
			select {
			case deviceScanResult = <-ch:
				log.Printf("[BLE] Found device: %s (RSSI: %d)", deviceScanResult.LocalName(), deviceScanResult.RSSI)
				cancelScan()
			case <-scanCtx.Done():
				adapter.StopScan()
				log.Println("[BLE] Scan timed out or interrupted. Retrying...")
				cancelScan()
				time.Sleep(c.retryDelay)
				continue
			}

			// Connect, guarded by a timeout because BlueZ can stall here.
			var device bluetooth.Device
			connectErrChan := make(chan error, 1)

			log.Printf("[BLE] Connecting to %s...", deviceScanResult.Address.String())

			go func() {
				d, err := adapter.Connect(deviceScanResult.Address, bluetooth.ConnectionParams{})
				if err == nil {
					device = d
				}
				connectErrChan <- err
			}()

			select {
			case err := <-connectErrChan:
				if err != nil {
					log.Printf("[BLE] Failed to connect: %v", err)
					onStatusChange(false, 0)
					time.Sleep(c.retryDelay)
					continue
				}
			case <-time.After(c.connectTimeout):
				log.Println("[BLE] Connection attempt timed out. Retrying...")
				adapter.StopScan()
				time.Sleep(c.retryDelay)
				continue
			case <-ctx.Done():
				return
			}

			log.Printf("[BLE] Connected to %s", deviceScanResult.LocalName())
			onStatusChange(true, deviceScanResult.RSSI)

			discoverErrChan := make(chan error, 1)
			go func() {
				services, err := device.DiscoverServices([]bluetooth.UUID{c.serviceUUID})
				if err != nil || len(services) == 0 {
					discoverErrChan <- err
					return
				}

				chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{c.characteristicUUID})
				if err != nil || len(chars) == 0 {
					discoverErrChan <- err
					return
				}
				c.characteristic = chars[0]

				// The device name characteristic doubles as a heartbeat
				// probe when present.
				genericAccessUUID, _ := bluetooth.ParseUUID("00001800-0000-1000-8000-00805f9b34fb")
				deviceNameUUID, _ := bluetooth.ParseUUID("00002a00-0000-1000-8000-00805f9b34fb")
				gaServices, _ := device.DiscoverServices([]bluetooth.UUID{genericAccessUUID})
				if len(gaServices) > 0 {
					gaChars, _ := gaServices[0].DiscoverCharacteristics([]bluetooth.UUID{deviceNameUUID})
					if len(gaChars) > 0 {
						c.heartbeatChar = gaChars[0]
					}
				}
				discoverErrChan <- nil
			}()

			select {
			case err := <-discoverErrChan:
				if err != nil {
					log.Printf("[BLE] Service discovery failed: %v", err)
					device.Disconnect()
					continue
				}
			case <-time.After(c.connectTimeout):
				log.Println("[BLE] Service discovery timed out. Disconnecting...")
				device.Disconnect()
				time.Sleep(c.retryDelay)
				continue
			case <-ctx.Done():
				device.Disconnect()
				return
			}

			log.Println("[BLE] BLEDOM device is ready.")

			heartbeatTicker := time.NewTicker(c.heartbeatInterval)
			running := true
			heartbeatBuffer := make([]byte, 20)

			for running {
				select {
				case <-heartbeatTicker.C:
					if c.heartbeatChar.UUID() != (bluetooth.UUID{}) {
						_, err := c.heartbeatChar.Read(heartbeatBuffer)
						if err != nil {
							log.Printf("[BLE] Heartbeat failed: %v", err)
							c.signalDisconnect()
						}
					}
				case <-c.disconnectChan:
					log.Println("[BLE] Disconnection signal received. Resetting connection...")
					running = false

				case <-ctx.Done():
					log.Println("[BLE] Disconnecting due to shutdown...")
					device.Disconnect()
					return
				}
			}

			heartbeatTicker.Stop()
			onStatusChange(false, 0)

			c.characteristic = bluetooth.DeviceCharacteristic{}
			c.heartbeatChar = bluetooth.DeviceCharacteristic{}

			if err := device.Disconnect(); err != nil {
				log.Printf("[BLE] Disconnect warning: %v", err)
			}

			time.Sleep(c.retryDelay)
		}
	}
}
