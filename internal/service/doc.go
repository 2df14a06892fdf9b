// Package service dispatches backlight method calls.
//
// A transport (D-Bus, MQTT) wraps each incoming request in a Call and hands
// it to Loop.Submit. The loop takes calls off its queue one at a time and
// passes them to the Table, which resolves the device, performs the
// attribute access and releases the device handle before the next call is
// taken.
//
// Errors produced anywhere in that chain are mapped onto a closed set of
// Kinds by Classify so that each transport translates them in one place.
package service
