package tasks

// CheckOwnership fails with ErrForbidden unless requester owns t.
func CheckOwnership(t Task, requester string) error {
	if t.Owner != requester {
		return ErrForbidden
	}
	return nil
}
