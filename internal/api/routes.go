package api

func (s *Server) setupRoutes() {
	s.router.GET("/", s.healthHandler.MonitorInfo)
	s.router.GET("/health", s.healthHandler.HealthCheck)

	background := s.router.Group("/background")
	{
		background.GET("/status", s.backgroundHandler.Status)
		background.POST("/start", s.backgroundHandler.Start)
		background.POST("/stop", s.backgroundHandler.Stop)
		background.POST("/restart", s.backgroundHandler.Restart)
		background.GET("/health", s.backgroundHandler.Health)
	}

	system := s.router.Group("/system")
	{
		system.GET("/stats", s.systemHandler.GetStats)
		system.GET("/events", s.systemHandler.GetRecentEvents)
	}
}
