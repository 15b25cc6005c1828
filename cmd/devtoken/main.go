// Command devtoken mints a staff access token for local testing of the
// HTTP surface.  It reads JWT_SECRET the same way the server does.
//
//	devtoken -user 1 -role hostel_admin -hostel 3 -ttl 2h
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/hostel-occupancy/internal/model"
	"github.com/iliyamo/hostel-occupancy/internal/utils"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "devtoken: .env:", err)
	}
	userID := flag.Uint64("user", 1, "subject user id")
	role := flag.String("role", string(model.RoleSuperAdmin), "custodian, hostel_admin or super_admin")
	hostel := flag.Uint64("hostel", 0, "hostel id (0 for none)")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "devtoken: JWT_SECRET is not set")
		os.Exit(2)
	}
	if !model.Role(*role).IsStaff() {
		fmt.Fprintf(os.Stderr, "devtoken: %q is not a staff role\n", *role)
		os.Exit(2)
	}
	var hostelID *uint64
	if *hostel > 0 {
		hostelID = hostel
	}
	tok, err := utils.NewAccessToken(secret, *userID, *role, hostelID, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "devtoken:", err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
	fmt.Fprintln(os.Stderr, "expires", tok.Exp.Format(time.RFC3339))
}
