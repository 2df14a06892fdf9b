// Package device resolves kernel device nodes for backlightd.
//
// A Handle is a transient reference to one device in a subsystem
// ("backlight", "video4linux"). Handles are created by a Resolver for a
// single request and released when that request ends; they are never
// cached, so every request sees the device tree as it is right now
// (devices may have been added or removed since the previous call).
//
// # Resolution
//
//	resolver := device.NewResolver(device.NewSysfsEnumerator("/sys", "/dev"))
//
//	h, err := resolver.Resolve(device.SubsystemBacklight, "intel_backlight")
//	if err != nil {
//	    return err // errors.Is(err, device.ErrNotFound)
//	}
//	defer h.Release()
//
// An empty name selects the first device the enumerator yields. The order
// is not a contract; callers that care which device they get when several
// exist must pass a name.
//
// # Thread Safety
//
// A Handle is owned by exactly one request and is not safe for concurrent
// use. The SysfsEnumerator holds no mutable state.
package device
