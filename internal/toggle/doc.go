// Package toggle holds the primary/standby pool assignment and the operator
// swap operation. The assignment is an immutable value behind an atomic
// pointer: readers are wait-free and a swap is visible atomically to every
// routing decision made after it returns.
package toggle
