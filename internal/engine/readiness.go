package engine

// AppStatus reports one required app's connection state.
type AppStatus struct {
	App       string `json:"app"`
	Connected bool   `json:"connected"`
}

// Readiness summarizes whether a plan can execute for a user.
type Readiness struct {
	// Status is "ready", "missing_apps", or "no_apps_required".
	Status      string      `json:"status"`
	Apps        []AppStatus `json:"apps"`
	MissingApps []string    `json:"missing_apps,omitempty"`
}

const (
	ReadyStatus          = "ready"
	MissingAppsStatus    = "missing_apps"
	NoAppsRequiredStatus = "no_apps_required"
)

// CheckApps compares a plan's required apps against the user's
// connected apps.
func CheckApps(required, connected []string) *Readiness {
	if len(required) == 0 {
		return &Readiness{Status: NoAppsRequiredStatus, Apps: []AppStatus{}}
	}
	set := make(map[string]bool, len(connected))
	for _, app := range connected {
		set[app] = true
	}
	r := &Readiness{Status: ReadyStatus, Apps: make([]AppStatus, 0, len(required))}
	for _, app := range required {
		ok := set[app]
		r.Apps = append(r.Apps, AppStatus{App: app, Connected: ok})
		if !ok {
			r.MissingApps = append(r.MissingApps, app)
		}
	}
	if len(r.MissingApps) > 0 {
		r.Status = MissingAppsStatus
	}
	return r
}
