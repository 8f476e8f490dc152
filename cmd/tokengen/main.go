// Command tokengen mints access tokens for local testing and for the
// payment gateway integration.  Sign-up and login live outside this
// service; tokens only need to be signed with the shared JWT_SECRET.
//
//	tokengen -user 7 -role CUSTOMER
//	tokengen -role PAYMENT_GATEWAY -ttl 720h
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/utils"
)

func main() {
	_ = godotenv.Load()

	userID := flag.Uint64("user", 0, "user id carried in the token")
	role := flag.String("role", model.RoleCustomer, "CUSTOMER, STAFF or PAYMENT_GATEWAY")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fail("JWT_SECRET is not set")
	}
	r := strings.ToUpper(*role)
	switch r {
	case model.RoleCustomer, model.RoleStaff:
		if *userID == 0 {
			fail("-user is required for " + r)
		}
	case model.RolePaymentGateway:
	default:
		fail("unknown role " + *role)
	}

	tok, err := utils.NewAccessToken(secret, *userID, r, *ttl)
	if err != nil {
		fail(err.Error())
	}
	fmt.Println(tok.Token)
	fmt.Fprintf(os.Stderr, "expires %s\n", tok.Exp.Format(time.RFC3339))
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, "tokengen:", msg)
	os.Exit(2)
}
