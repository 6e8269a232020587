//go:build small

package phys

// defaultParentTableCapacity is reduced for small/embedded builds.
const defaultParentTableCapacity = 32
