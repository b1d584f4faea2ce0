//go:build linux || solaris || aix

package logger

import "golang.org/x/sys/unix"

const ioctlReadTermios = unix.TCGETS
