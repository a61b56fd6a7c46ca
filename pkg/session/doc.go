// Package session tracks per-user conversation sessions in memory and gates
// every interaction on expiry, a lifetime interaction cap and a sliding
// one-minute request rate.
//
// Invariants:
// - Every stored session has exactly one rate window and vice versa.
// - A session's interaction count never exceeds the configured cap.
// - Only Active sessions accept work; Expired, RateLimited and Blocked are terminal.
// - Session ids are never reused within a process.
// - Callers only receive copies; all mutation goes through the Manager.
//
// Usage:
//
//	mgr, _ := session.NewManager(session.ManagerOptions{})
//	sess, _ := mgr.CreateOrGetSession("user-1", "")
//	if d := mgr.Authorize(sess.ID, "chat"); !d.Accepted {
//		_ = d.Err()
//	}
//	sweeper := session.NewSweeper(mgr, 5*time.Minute)
//	_ = sweeper.Start()
package session
