package appointment

// ServiceInfo is a row of the clinic's service catalog.
type ServiceInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// DurationMinutes is nil when the service has no fixed length.
	DurationMinutes *int `json:"duration_minutes"`
}

// Booking is an appointment request that already holds a place on the agenda.
type Booking struct {
	ID            string  `json:"id"`
	ScheduledDate string  `json:"scheduled_date"`
	ScheduledTime string  `json:"scheduled_time"`
	Veterinarian  *string `json:"veterinarian"`
	ServiceID     *string `json:"service_id"`
	Status        Status  `json:"status"`
}
