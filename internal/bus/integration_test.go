//go:build integration

package bus

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/nerrad567/gray-logic-backlightd/internal/brightness"
	"github.com/nerrad567/gray-logic-backlightd/internal/device"
	"github.com/nerrad567/gray-logic-backlightd/internal/device/devicetest"
	"github.com/nerrad567/gray-logic-backlightd/internal/service"
)

// Requires a session bus (DBUS_SESSION_BUS_ADDRESS).
func TestServer_SessionBus(t *testing.T) {
	if os.Getenv("DBUS_SESSION_BUS_ADDRESS") == "" {
		t.Skip("no session bus")
	}

	devices := devicetest.New().Add(device.SubsystemBacklight, "intel_backlight", map[string]string{
		brightness.AttrBrightness:    "50",
		brightness.AttrMaxBrightness: "100",
	})
	table := service.NewTable(device.NewResolver(devices), brightness.NewAccessor(nil))
	loop := service.NewLoop(table, 0)

	cfg := Config{Type: TypeSession, Name: "org.clight.backlight.Test"}
	srv, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx, srv.Lost()) }()

	if err := srv.Export(loop, table); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	client, err := dbus.ConnectSessionBus()
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer client.Close()

	obj := client.Object(cfg.Name, DefaultPath)

	var got int32
	if err := obj.Call(DefaultInterface+".setbrightness", 0, "intel_backlight", int32(70)).Store(&got); err != nil {
		t.Fatalf("setbrightness: %v", err)
	}
	if got != 70 {
		t.Errorf("setbrightness = %d, want 70", got)
	}

	err = obj.Call(DefaultInterface+".getbrightness", 0, "nope").Store(&got)
	var derr dbus.Error
	if e, ok := err.(dbus.Error); ok {
		derr = e
	}
	if derr.Name != ErrorFileNotFound {
		t.Errorf("getbrightness(nope) error = %v, want %s", err, ErrorFileNotFound)
	}

	var avg float64
	err = obj.Call(DefaultInterface+".captureframes", 0, "", int32(1)).Store(&avg)
	if e, ok := err.(dbus.Error); !ok || e.Name != ErrorUnknownMethod {
		t.Errorf("captureframes while disabled error = %v, want %s", err, ErrorUnknownMethod)
	}

	var xml string
	if err := obj.Call("org.freedesktop.DBus.Introspectable.Introspect", 0).Store(&xml); err != nil {
		t.Fatalf("Introspect: %v", err)
	}
	if !strings.Contains(xml, "getactualbrightness") || strings.Contains(xml, "captureframes") {
		t.Errorf("introspection data does not match the table:\n%s", xml)
	}
}

// Pipelined calls from one client are applied in the order they were sent.
func TestServer_PipelinedCallsKeepOrder(t *testing.T) {
	if os.Getenv("DBUS_SESSION_BUS_ADDRESS") == "" {
		t.Skip("no session bus")
	}

	devices := devicetest.New().Add(device.SubsystemBacklight, "intel_backlight", map[string]string{
		brightness.AttrBrightness:    "0",
		brightness.AttrMaxBrightness: "1000",
	})
	table := service.NewTable(device.NewResolver(devices), brightness.NewAccessor(nil))
	loop := service.NewLoop(table, 0)

	cfg := Config{Type: TypeSession, Name: "org.clight.backlight.TestOrder"}
	srv, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx, srv.Lost()) }()

	if err := srv.Export(loop, table); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	client, err := dbus.ConnectSessionBus()
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer client.Close()

	obj := client.Object(cfg.Name, DefaultPath)

	const n = 200
	done := make(chan *dbus.Call, n)
	for i := 1; i <= n; i++ {
		obj.Go(DefaultInterface+".setbrightness", 0, done, "intel_backlight", int32(i))
	}
	timeout := time.After(10 * time.Second)
	for range n {
		select {
		case call := <-done:
			if call.Err != nil {
				t.Fatalf("setbrightness: %v", call.Err)
			}
		case <-timeout:
			t.Fatal("timed out waiting for replies")
		}
	}

	var writes []string
	for _, op := range devices.Ops() {
		if v, ok := strings.CutPrefix(op, "write backlight/intel_backlight brightness="); ok {
			writes = append(writes, v)
		}
	}
	if len(writes) != n {
		t.Fatalf("%d writes, want %d", len(writes), n)
	}
	for i, v := range writes {
		if v != fmt.Sprint(i+1) {
			t.Fatalf("write %d = %s, want %d (writes %v)", i, v, i+1, writes[:min(len(writes), 10)])
		}
	}
	if v, _ := devices.Attr(device.SubsystemBacklight, "intel_backlight", brightness.AttrBrightness); v != fmt.Sprint(n) {
		t.Errorf("final brightness = %s, want %d", v, n)
	}
}
