package service

import (
	"database/sql"

	"github.com/iliyamo/cinema-booking/internal/repository"
)

// MySQLDeps fills the store collaborators of Deps with the repository
// implementations over db.  Pricer, Clock and Logger are left to the caller.
func MySQLDeps(db *sql.DB) Deps {
	return Deps{
		Tx:         repository.NewTxManager(db),
		Bookings:   repository.NewBookingRepo(db),
		Showtimes:  repository.NewShowtimeRepo(db),
		Seats:      repository.NewSeatRepo(db),
		Tickets:    repository.NewTicketRepo(db),
		History:    repository.NewHistoryRepo(db),
		Payments:   repository.NewPaymentRepo(db),
		Loyalty:    repository.NewLoyaltyRepo(db),
		Promotions: repository.NewPromotionRepo(db),
		Outbox:     repository.NewOutboxRepo(db),
	}
}
