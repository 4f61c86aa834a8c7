package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-broadway/broadway/pkg/display"
	"github.com/go-broadway/broadway/pkg/protocol"
	"github.com/go-broadway/broadway/pkg/surface"
)

// demoClient is the client id the demo registers its windows under.
const demoClient = 1

const (
	demoFrameInterval = 50 * time.Millisecond
	demoBoxSize       = 32
	demoBadgeW        = 120
	demoBadgeH        = 28
	demoReshowTicks   = 100 // ~5s at the frame interval
)

// demoScene is a small built-in application: a draggable window with a
// bouncing box and a transient badge that pulses with input activity.
// Run owns all scene state. HandleEvent only enqueues, so the display
// loop is never blocked by the demo.
type demoScene struct {
	logger *slog.Logger
	events chan *protocol.InputMsg

	srv *display.Server

	main  int32
	badge int32

	mainX, mainY int32
	mainW, mainH int32

	boxX, boxY   int
	boxDX, boxDY int

	tick        uint64
	paused      bool
	activity    int
	dragging    bool
	dragOffX    int32
	dragOffY    int32
	reshowMain  uint64
	reshowBadge uint64

	screenW int32
	screenH int32
}

func newDemoScene(logger *slog.Logger) *demoScene {
	return &demoScene{
		logger: logger.With("component", "demo"),
		events: make(chan *protocol.InputMsg, 128),
	}
}

// HandleEvent feeds display input to the scene. It runs on the display
// loop and must not block; under pressure events are dropped.
func (d *demoScene) HandleEvent(msg *protocol.InputMsg) {
	select {
	case d.events <- msg:
	default:
	}
}

// Run builds the scene and animates it until ctx is done. Server
// operations after shutdown are rejected by the server, so the demo
// needs no teardown of its own.
func (d *demoScene) Run(ctx context.Context, srv *display.Server) {
	d.srv = srv
	d.mainX, d.mainY = 32, 32
	d.mainW, d.mainH = 256, 192
	d.boxDX, d.boxDY = 3, 2
	d.screenW, d.screenH = srv.ScreenSize()

	d.main = srv.CreateWindow(demoClient, d.mainX, d.mainY, d.mainW, d.mainH, false)
	d.badge = srv.CreateWindow(demoClient, d.badgeX(), d.badgeY(), demoBadgeW, demoBadgeH, true)
	srv.SetTransientFor(d.badge, d.main)
	d.paint()
	srv.ShowWindow(d.main)
	srv.ShowWindow(d.badge)
	d.logger.Info("demo scene running", "main", d.main, "badge", d.badge)

	ticker := time.NewTicker(demoFrameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.events:
			d.handle(msg)
		case <-ticker.C:
			d.advance()
		}
	}
}

func (d *demoScene) badgeX() int32 { return d.mainX + 24 }
func (d *demoScene) badgeY() int32 { return d.mainY + d.mainH + 12 }

func (d *demoScene) handle(msg *protocol.InputMsg) {
	if msg.Type != protocol.EventSyncReply {
		d.activity = 20
	}
	switch msg.Type {
	case protocol.EventButtonPress:
		p := msg.Pointer
		if p.Button == 1 && p.EventWindow == d.main && !d.dragging {
			d.dragging = true
			d.dragOffX = p.RootX - d.mainX
			d.dragOffY = p.RootY - d.mainY
			d.srv.GrabPointer(demoClient, d.main, false, msg.Time)
		}
	case protocol.EventMotion:
		if d.dragging {
			d.moveTo(msg.Pointer.RootX-d.dragOffX, msg.Pointer.RootY-d.dragOffY)
		}
	case protocol.EventButtonRelease:
		if msg.Pointer.Button == 1 && d.dragging {
			d.dragging = false
			d.srv.UngrabPointer(msg.Time)
		}
	case protocol.EventUngrabNotify:
		// Browser-side grab break, e.g. the tab lost focus mid-drag.
		d.dragging = false
	case protocol.EventKeyPress:
		if msg.Key.Keysym == ' ' {
			d.paused = !d.paused
		}
	case protocol.EventConfigure:
		// Keep the badge anchored when the browser moves the window.
		if msg.Window.Window == d.main {
			d.mainX, d.mainY = msg.Window.X, msg.Window.Y
			d.srv.MoveResizeWindow(d.badge, d.badgeX(), d.badgeY(), demoBadgeW, demoBadgeH)
		}
	case protocol.EventDelete:
		switch msg.Window.Window {
		case d.main:
			d.srv.HideWindow(d.main)
			d.reshowMain = d.tick + demoReshowTicks
		case d.badge:
			d.srv.HideWindow(d.badge)
			d.reshowBadge = d.tick + demoReshowTicks
		}
	case protocol.EventScreenResize:
		d.screenW, d.screenH = msg.Screen.Width, msg.Screen.Height
		d.moveTo(d.mainX, d.mainY)
	}
}

// moveTo clamps the main window into the screen and drags the badge
// along with it.
func (d *demoScene) moveTo(x, y int32) {
	if d.screenW > 0 {
		if limit := d.screenW - d.mainW; x > limit {
			x = limit
		}
	}
	if d.screenH > 0 {
		if limit := d.screenH - d.mainH; y > limit {
			y = limit
		}
	}
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	d.mainX, d.mainY = x, y
	d.srv.MoveResizeWindow(d.main, x, y, d.mainW, d.mainH)
	d.srv.MoveResizeWindow(d.badge, d.badgeX(), d.badgeY(), demoBadgeW, demoBadgeH)
}

func (d *demoScene) advance() {
	d.tick++
	if d.activity > 0 {
		d.activity--
	}
	if d.reshowMain != 0 && d.tick >= d.reshowMain {
		d.reshowMain = 0
		d.srv.ShowWindow(d.main)
	}
	if d.reshowBadge != 0 && d.tick >= d.reshowBadge {
		d.reshowBadge = 0
		d.srv.ShowWindow(d.badge)
	}
	if d.paused {
		return
	}

	d.boxX += d.boxDX
	d.boxY += d.boxDY
	if d.boxX < 0 || d.boxX+demoBoxSize > int(d.mainW) {
		d.boxDX = -d.boxDX
		d.boxX += 2 * d.boxDX
	}
	if d.boxY < 0 || d.boxY+demoBoxSize > int(d.mainH) {
		d.boxDY = -d.boxDY
		d.boxY += 2 * d.boxDY
	}
	d.paint()
}

func (d *demoScene) paint() {
	s := surface.New(int(d.mainW), int(d.mainH))
	s.Fill(24, 24, 32, 255)
	outlineRect(s, 0, 0, int(d.mainW), int(d.mainH), 90, 90, 110)
	fillRect(s, d.boxX, d.boxY, demoBoxSize, demoBoxSize, 225, 80, 60)
	d.srv.SetWindowContent(d.main, s.NRGBA())

	// The badge pulses slowly and flares on input.
	phase := int(d.tick % 64)
	if phase >= 32 {
		phase = 64 - phase
	}
	v := 60 + 3*phase + 6*d.activity
	if v > 255 {
		v = 255
	}
	b := surface.New(demoBadgeW, demoBadgeH)
	b.Fill(byte(v/3), byte(v), byte(v*2/3), 255)
	outlineRect(b, 0, 0, demoBadgeW, demoBadgeH, 20, 60, 40)
	d.srv.SetWindowContent(d.badge, b.NRGBA())
}

// fillRect paints an axis-aligned rectangle, clipped by SetPixel.
func fillRect(s *surface.Surface, x, y, w, h int, r, g, b byte) {
	for yy := y; yy < y+h; yy++ {
		for xx := x; xx < x+w; xx++ {
			s.SetPixel(xx, yy, r, g, b, 255)
		}
	}
}

// outlineRect draws a one pixel border just inside the rectangle.
func outlineRect(s *surface.Surface, x, y, w, h int, r, g, b byte) {
	fillRect(s, x, y, w, 1, r, g, b)
	fillRect(s, x, y+h-1, w, 1, r, g, b)
	fillRect(s, x, y, 1, h, r, g, b)
	fillRect(s, x+w-1, y, 1, h, r, g, b)
}
