package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stormguard/stormguard/internal/announce"
	"github.com/stormguard/stormguard/internal/webui"
)

// Reloader re-reads persisted state from disk
type Reloader interface {
	Reload() error
}

// EntityRow is one line of the dashboard's entity table
type EntityRow struct {
	ID       string
	Location string
	Interval string
	Admins   int
	Alerts   int
	Enabled  bool
	Pending  bool
}

// SequenceRow is one running shutdown sequence
type SequenceRow struct {
	EntityID  string
	EventType string
	RunID     string
	Round     int
	StartedAt string
	Committed bool
}

// ConfigInfo summarizes the loaded configuration
type ConfigInfo struct {
	ConfigPath    string
	StatePath     string
	PollInterval  string
	RoundInterval string
	Cooldown      string
}

// PageData feeds the dashboard template
type PageData struct {
	EntityCount  int
	EnabledCount int
	PendingCount int
	Uptime       string
	Entities     []EntityRow
	Sequences    []SequenceRow
	Announcement announce.Announcement
	AnnouncedAt  string
	Subscribers  int
	Rounds       int
	Config       ConfigInfo
	Logs         []webui.LogEntry
	Version      string
	Commit       string
	BuildDate    string
}

// handleDashboard renders the status page
func (s *Server) handleDashboard(c *gin.Context) {
	s.versionMu.RLock()
	info := s.version
	s.versionMu.RUnlock()

	data := PageData{
		Uptime:       formatDuration(time.Since(s.startTime)),
		Announcement: s.announcements.Latest(),
		Subscribers:  s.announcements.Subscribers(),
		Version:      info.Version,
		Commit:       info.Commit,
		BuildDate:    info.BuildDate,
	}
	if !data.Announcement.Timestamp.IsZero() {
		data.AnnouncedAt = data.Announcement.Timestamp.Local().Format("2006-01-02 15:04:05")
	}

	if cfg := s.config; cfg != nil {
		data.Rounds = cfg.Countdown.Rounds
		data.Config = ConfigInfo{
			ConfigPath:    s.configPath,
			StatePath:     cfg.Global.StatePath,
			PollInterval:  cfg.Global.PollInterval.String(),
			RoundInterval: cfg.Countdown.RoundInterval.String(),
			Cooldown:      cfg.Countdown.Cooldown.String(),
		}
	}

	pending := make(map[string]bool)
	if s.sequences != nil {
		for _, seq := range s.sequences.Snapshot() {
			if !seq.Pending {
				continue
			}
			pending[seq.EntityID] = true
			data.Sequences = append(data.Sequences, SequenceRow{
				EntityID:  seq.EntityID,
				EventType: seq.EventType,
				RunID:     seq.RunID,
				Round:     seq.Round,
				StartedAt: seq.StartedAt.Local().Format("15:04:05"),
				Committed: seq.Committed,
			})
		}
	}
	data.PendingCount = len(data.Sequences)

	if s.entities != nil {
		for _, ent := range s.entities.List() {
			row := EntityRow{
				ID:       ent.ID,
				Interval: ent.MonitoringInterval.String(),
				Admins:   len(ent.Admins),
				Alerts:   len(ent.Alerts),
				Enabled:  ent.Enabled,
				Pending:  pending[ent.ID],
			}
			if ent.Location != nil {
				row.Location = fmt.Sprintf("%.4f, %.4f", ent.Location.Latitude, ent.Location.Longitude)
			}
			if ent.Enabled {
				data.EnabledCount++
			}
			data.Entities = append(data.Entities, row)
		}
	}
	data.EntityCount = len(data.Entities)

	if s.logBuffer != nil {
		data.Logs = s.logBuffer.GetRecentEntries(100, "")
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := webui.Templates.ExecuteTemplate(c.Writer, "base", data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to render dashboard")
	}
}

// handleReload re-reads the state file so manual edits take effect without a restart
func (s *Server) handleReload(c *gin.Context) {
	if s.reloader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "reload not configured"})
		return
	}

	s.logger.Info().Msg("State reload requested via API")
	if err := s.reloader.Reload(); err != nil {
		s.logger.Error().Err(err).Msg("State reload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	count := 0
	if s.entities != nil {
		count = len(s.entities.List())
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "entity_count": count})
}

// formatDuration renders uptime as "42s", "17m", "5h3m" or "3d 4h"
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}
	if d < 24*time.Hour {
		return strings.TrimSuffix(d.Round(time.Minute).String(), "0s")
	}
	days := int(d / (24 * time.Hour))
	hours := int((d % (24 * time.Hour)) / time.Hour)
	if hours == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd %dh", days, hours)
}
