//go:build !small

package phys

// defaultParentTableCapacity bounds the number of distinct parent
// Ethernet interfaces the daemon may bind concurrently.
const defaultParentTableCapacity = 4096
