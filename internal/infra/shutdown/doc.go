// Package shutdown runs cleanup hooks when the process is asked to stop.
//
//	h := shutdown.NewHandler(10 * time.Second)
//	h.OnShutdown(srv.Shutdown)
//	if err := h.Wait(ctx); err != nil {
//		logger.Error("shutdown", "error", err)
//	}
package shutdown
