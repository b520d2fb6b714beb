// Package logmanager is the process-scoped owner of physical log
// containers. It hands out handles of one logger kind at a time and keeps
// the table of open container paths so a path is never opened twice.
//
// Example:
//
//	m := logmanager.New(logmanager.Options{Logger: logger})
//	h, _ := m.Open(ctx, logmanager.KindDefault)
//	c, _ := h.OpenPhysicalLog(ctx, "/var/lib/sharedlog/c1", cid, true)
//	s, _ := c.OpenLogicalStream(ctx, sid, "")
//	_ = s.Close(ctx)
//	_ = c.Close(ctx)
//	_ = h.Close(ctx)
package logmanager
