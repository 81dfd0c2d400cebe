package chairtypes

// ServiceID names one chair subsystem. The set is closed: the kernel refuses to
// initialize until every identifier returned by AllServiceIDs has a registered service.
type ServiceID string

const (
	ServiceAudio    ServiceID = "audio"
	ServiceDisplay  ServiceID = "display"
	ServiceLighting ServiceID = "lighting"
	ServiceLocation ServiceID = "location"
	ServiceMap      ServiceID = "map"
	ServiceMusic    ServiceID = "music"
	ServiceRelay    ServiceID = "relay"
	ServiceRemote   ServiceID = "remote"
	ServiceScript   ServiceID = "script"
	ServiceSecurity ServiceID = "security"
)

// AllServiceIDs returns the closed set of service identifiers.
func AllServiceIDs() []ServiceID {
	return []ServiceID{
		ServiceAudio,
		ServiceDisplay,
		ServiceLighting,
		ServiceLocation,
		ServiceMap,
		ServiceMusic,
		ServiceRelay,
		ServiceRemote,
		ServiceScript,
		ServiceSecurity,
	}
}
