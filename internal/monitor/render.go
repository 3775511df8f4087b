package monitor

import "fmt"

// Render formats an alert into the text delivered to notifiers on stdin,
// per spec.md §6:
//
//	{server_name}[ {service_name}]: [{channel}/{event}] {message}
//	Current: {latest.state}: {latest.info}
//
// The "Current" line is omitted when the alert has no associated service
// or the service has no latest state.
func Render(server *Server, service *Service, latest *ServiceState, a *Alert) string {
	serverName := ""
	if server != nil {
		serverName = server.Name
	}

	label := serverName
	if service != nil {
		label = fmt.Sprintf("%s %s", serverName, service.Name)
	}

	out := fmt.Sprintf("%s: [%s/%s] %s\n", label, a.Channel, a.Event, a.Message)
	if service != nil && latest != nil {
		out += fmt.Sprintf("Current: %s: %s\n", latest.State, latest.Info)
	}
	return out
}
