package storage

import "golang.org/x/sys/unix"

// errNoAttr is the errno getxattr returns for a missing attribute.
const errNoAttr = unix.ENODATA
