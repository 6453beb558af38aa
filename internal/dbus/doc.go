// Package dbus observes MPRIS media players on the D-Bus session bus.
// It follows org.mpris.MediaPlayer2.Player property changes, Seeked
// signals and player appearance, and reports them as raw updates.
package dbus
