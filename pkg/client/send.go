package client

import (
	"fmt"

	"github.com/go-broadway/broadway/pkg/protocol"
)

// Send encodes msg and writes it to the server. A zero Serial is replaced
// with the next client serial and a zero Time with the milliseconds since
// dial; set them explicitly to test serial or timestamp handling.
func (c *Client) Send(msg *protocol.InputMsg) error {
	select {
	case <-c.done:
		return fmt.Errorf("client: send %s: %w", msg.Type, c.Err())
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if msg.Serial == 0 {
		c.serial++
		msg.Serial = c.serial
	} else if msg.Serial > c.serial {
		c.serial = msg.Serial
	}
	if msg.Time == 0 {
		msg.Time = c.now()
	}
	c.buf = msg.Append(c.buf[:0])
	if err := c.conn.WriteMessage(c.msgType, c.buf); err != nil {
		return fmt.Errorf("client: send %s: %w", msg.Type, err)
	}
	return nil
}

func pointer(mouseWin, eventWin, rootX, rootY, winX, winY int32, state protocol.Modifiers) *protocol.PointerData {
	return &protocol.PointerData{
		MouseWindow: mouseWin,
		EventWindow: eventWin,
		RootX:       rootX,
		RootY:       rootY,
		WinX:        winX,
		WinY:        winY,
		State:       state,
	}
}

// SendEnter reports the pointer entering a window.
func (c *Client) SendEnter(mouseWin, eventWin, rootX, rootY, winX, winY int32, state protocol.Modifiers, mode protocol.CrossingMode) error {
	p := pointer(mouseWin, eventWin, rootX, rootY, winX, winY, state)
	p.Mode = mode
	return c.Send(&protocol.InputMsg{Type: protocol.EventEnter, Pointer: p})
}

// SendLeave reports the pointer leaving a window.
func (c *Client) SendLeave(mouseWin, eventWin, rootX, rootY, winX, winY int32, state protocol.Modifiers, mode protocol.CrossingMode) error {
	p := pointer(mouseWin, eventWin, rootX, rootY, winX, winY, state)
	p.Mode = mode
	return c.Send(&protocol.InputMsg{Type: protocol.EventLeave, Pointer: p})
}

// SendMotion reports pointer movement.
func (c *Client) SendMotion(mouseWin, eventWin, rootX, rootY, winX, winY int32, state protocol.Modifiers) error {
	return c.Send(&protocol.InputMsg{
		Type:    protocol.EventMotion,
		Pointer: pointer(mouseWin, eventWin, rootX, rootY, winX, winY, state),
	})
}

// SendButtonPress reports a mouse button press. button is 1-based.
func (c *Client) SendButtonPress(mouseWin, eventWin, rootX, rootY, winX, winY int32, state protocol.Modifiers, button int32) error {
	p := pointer(mouseWin, eventWin, rootX, rootY, winX, winY, state)
	p.Button = button
	return c.Send(&protocol.InputMsg{Type: protocol.EventButtonPress, Pointer: p})
}

// SendButtonRelease reports a mouse button release. button is 1-based.
func (c *Client) SendButtonRelease(mouseWin, eventWin, rootX, rootY, winX, winY int32, state protocol.Modifiers, button int32) error {
	p := pointer(mouseWin, eventWin, rootX, rootY, winX, winY, state)
	p.Button = button
	return c.Send(&protocol.InputMsg{Type: protocol.EventButtonRelease, Pointer: p})
}

// SendScroll reports a scroll wheel tick.
func (c *Client) SendScroll(mouseWin, eventWin, rootX, rootY, winX, winY int32, state protocol.Modifiers, direction protocol.ScrollDirection) error {
	p := pointer(mouseWin, eventWin, rootX, rootY, winX, winY, state)
	p.Direction = direction
	return c.Send(&protocol.InputMsg{Type: protocol.EventScroll, Pointer: p})
}

// SendKeyPress reports a key press.
func (c *Client) SendKeyPress(keysym int32, state protocol.Modifiers) error {
	return c.Send(&protocol.InputMsg{
		Type: protocol.EventKeyPress,
		Key:  &protocol.KeyData{Keysym: keysym, State: state},
	})
}

// SendKeyRelease reports a key release.
func (c *Client) SendKeyRelease(keysym int32, state protocol.Modifiers) error {
	return c.Send(&protocol.InputMsg{
		Type: protocol.EventKeyRelease,
		Key:  &protocol.KeyData{Keysym: keysym, State: state},
	})
}

// SendGrabNotify acknowledges a pointer grab on a window. It is sent
// automatically when the server grabs the pointer.
func (c *Client) SendGrabNotify(window int32) error {
	return c.Send(&protocol.InputMsg{
		Type:   protocol.EventGrabNotify,
		Window: &protocol.WindowData{Window: window},
	})
}

// SendUngrabNotify reports a client-side grab break, released under the
// same timestamp rule as a server-side ungrab.
func (c *Client) SendUngrabNotify(window int32) error {
	return c.Send(&protocol.InputMsg{
		Type:   protocol.EventUngrabNotify,
		Window: &protocol.WindowData{Window: window},
	})
}

// SendConfigure reports a window moved or resized on the client side.
func (c *Client) SendConfigure(window, x, y, width, height int32) error {
	return c.Send(&protocol.InputMsg{
		Type: protocol.EventConfigure,
		Window: &protocol.WindowData{
			Window: window,
			X:      x,
			Y:      y,
			Width:  width,
			Height: height,
		},
	})
}

// SendDelete reports a window closed on the client side.
func (c *Client) SendDelete(window int32) error {
	return c.Send(&protocol.InputMsg{
		Type:   protocol.EventDelete,
		Window: &protocol.WindowData{Window: window},
	})
}

// SendScreenResize reports the client viewport size.
func (c *Client) SendScreenResize(width, height int32) error {
	return c.Send(&protocol.InputMsg{
		Type:   protocol.EventScreenResize,
		Screen: &protocol.ScreenData{Width: width, Height: height},
	})
}
