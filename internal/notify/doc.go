// Package notify runs external notifier plugins and fans an alert message
// out to all of them, with the two-pass escalation-on-failure behavior
// spec.md §4.2 describes. Grounded on overc/lib/alerts.py
// (send_alert_to_subscribers / execute_alert_plugin) from original_source,
// restructured the way the teacher structures subprocess/HTTP dispatch in
// internal/notify/slack.
package notify
