// Package schedule parses schedule strings (cron, @every, durations, HH:MM) and
// runs named maintenance jobs on them using robfig/cron.
package schedule
