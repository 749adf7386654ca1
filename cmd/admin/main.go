// The admin command is an operator CLI for the moderation system: manual
// bans, unbans and report review.
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"nashenas/backend/internal/config"
	"nashenas/backend/internal/moderation"
	"nashenas/backend/internal/storage"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	s := storage.NewService(db, rdb)
	mod := moderation.NewService(s)

	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "ban":
		if len(os.Args) < 3 {
			usage()
		}
		level := 1
		if len(os.Args) > 3 {
			level, err = strconv.Atoi(os.Args[3])
			if err != nil {
				log.Fatal("Invalid ban level. Provide 1, 2 or 3.")
			}
		}
		if err := mod.Ban(os.Args[2], level); err != nil {
			log.Fatalf("Error banning user: %v", err)
		}
		fmt.Printf("User %s has been banned (level %d).\n", os.Args[2], level)

	case "unban":
		if len(os.Args) != 3 {
			usage()
		}
		if err := mod.Unban(os.Args[2]); err != nil {
			log.Fatalf("Error unbanning user: %v", err)
		}
		fmt.Printf("User %s has been unbanned.\n", os.Args[2])

	case "confirm-report":
		reportID := parseReportID()
		if err := mod.ConfirmReport(reportID); err != nil {
			log.Fatalf("Error confirming report: %v", err)
		}
		fmt.Printf("Report %d has been confirmed.\n", reportID)

	case "dismiss-report":
		reportID := parseReportID()
		if err := mod.DismissReport(reportID); err != nil {
			log.Fatalf("Error dismissing report: %v", err)
		}
		fmt.Printf("Report %d has been dismissed.\n", reportID)

	default:
		usage()
	}
}

func parseReportID() uint {
	if len(os.Args) != 3 {
		usage()
	}
	id, err := strconv.Atoi(os.Args[2])
	if err != nil {
		log.Fatal("Invalid report ID. Provide an integer.")
	}
	return uint(id)
}

func usage() {
	fmt.Println("Usage: admin <command> [args]")
	fmt.Println("  ban <user_id> [level]")
	fmt.Println("  unban <user_id>")
	fmt.Println("  confirm-report <report_id>")
	fmt.Println("  dismiss-report <report_id>")
	os.Exit(1)
}
