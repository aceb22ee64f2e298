package ble

// SetPower builds and sends the power on/off command.
func (c *Controller) SetPower(isOn bool) {
	val := 0x00
	if isOn {
		val = 0x01
	}
	c.Write([]byte{0x7E, 0x04, 0x04, byte(val), 0x00, byte(val), 0xFF, 0x00, 0xEF})
}

// SetColor builds and sends the color command.
func (c *Controller) SetColor(r, g, b int) {
	c.Write([]byte{0x7E, 0x07, 0x05, 0x03, byte(r), byte(g), byte(b), 0x10, 0xEF})
}

// SetBrightness builds and sends the brightness command. Value 0..100.
func (c *Controller) SetBrightness(val int) {
	if val < 0 {
		val = 0
	}
	if val > 100 {
		val = 100
	}
	c.Write([]byte{0x7E, 0x04, 0x01, byte(val), 0xFF, 0xFF, 0xFF, 0x00, 0xEF})
}
