// Package actuator drives the indicator light that signals a received
// notification.
//
// The hardware variant is chosen once at startup by New: a GPIO line
// driven through the Linux character device (go-gpiocdev), or a logging
// stand-in when --no-gpio is set or the line cannot be requested. Callers
// never check for nil hardware; they always hold a Driver.
//
// Blink patterns play on a background goroutine so Activate returns
// immediately, which keeps broker callbacks non-blocking.
package actuator
