// Package notify delivers booking notifications.  The file notifier appends
// one human readable line per notification to a log file; it stands in for
// an email or SMS provider.
package notify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/cinema-booking/internal/queue"
)

// DefaultPath is where notifications go when no path is configured.
var DefaultPath = filepath.Join("logs", "booking.log")

// FileNotifier appends notifications to a file.
type FileNotifier struct {
	path string
	mu   sync.Mutex
}

// NewFileNotifier returns a notifier writing to path, or DefaultPath when
// path is empty.
func NewFileNotifier(path string) *FileNotifier {
	if path == "" {
		path = DefaultPath
	}
	return &FileNotifier{path: path}
}

// SendBookingConfirmation records the tickets of a confirmed booking.
func (n *FileNotifier) SendBookingConfirmation(ctx context.Context, ev queue.BookingConfirmedEvent) error {
	line := fmt.Sprintf("[%s] Booking confirmed | booking_id=%d | customer=%s | showtime_id=%d | room=%q | movie=%q | starts_at=%s | total=%d | seats=%s | tickets=%s\n",
		ev.ConfirmedAt.UTC().Format(time.RFC3339), ev.BookingID, recipient(ev.CustomerID, ev.CreatorID), ev.ShowtimeID,
		ev.RoomName, ev.MovieTitle, ev.StartsAt.UTC().Format(time.RFC3339), ev.TotalAmount, list(ev.Seats), list(ev.TicketCodes))
	return n.append(line)
}

// SendCancellationNotice records a cancellation and its refund.
func (n *FileNotifier) SendCancellationNotice(ctx context.Context, ev queue.BookingCancelledEvent) error {
	line := fmt.Sprintf("[%s] Booking cancelled | booking_id=%d | customer=%s | showtime_id=%d | reason=%q | previous=%s | refund=%d | points_refund=%d | seats=%s\n",
		ev.CancelledAt.UTC().Format(time.RFC3339), ev.BookingID, recipient(ev.CustomerID, ev.CreatorID), ev.ShowtimeID,
		ev.Reason, ev.PreviousStatus, ev.RefundAmount, ev.PointsUsed, list(ev.Seats))
	return n.append(line)
}

func (n *FileNotifier) append(line string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if dir := filepath.Dir(n.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(n.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open notification log: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write notification log: %w", err)
	}
	return nil
}

func recipient(customerID *uint64, creatorID uint64) string {
	if customerID != nil {
		return fmt.Sprintf("user:%d", *customerID)
	}
	return fmt.Sprintf("walk-in(staff:%d)", creatorID)
}

func list(items []string) string {
	return "[" + strings.Join(items, ",") + "]"
}
