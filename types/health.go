package types

// ModuleHealthState reports the liveness of one named dependency.
type ModuleHealthState struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
}

// HealthState is the /health response body.
type HealthState struct {
	Healthy      bool                `json:"healthy"`
	Dependencies []ModuleHealthState `json:"dependencies"`
}

// ClientConfig is the public client-facing configuration served at /config.
type ClientConfig struct {
	ContactEmail       *string `json:"contact_email,omitempty"`
	BugReportEmail     *string `json:"bug_report_email,omitempty"`
	TermsAndConditions *string `json:"terms_and_conditions,omitempty"`

	// PipelineTicketExpireTimeSec is informational; expiry is enforced
	// server-side by the maintenance worker.
	PipelineTicketExpireTimeSec int     `json:"pipeline_ticket_expire_time_sec"`
	EntryText                   *string `json:"entry_text,omitempty"`
}

// ClientLink is one entry of the /info-links response.
type ClientLink struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}
