package main

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"whiteboard-backend/internal/database"
)

// Verifies the event log tables: per-room counts and event_id
// contiguity. A room where max(event_id) != count(*) lost rows.
func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	db, err := database.ConnectDB()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	fmt.Println("✅ Connected to database")
	fmt.Println()

	for _, table := range []string{"users", "rooms", "room_participants", "room_events"} {
		var count int64
		if err := db.Table(table).Count(&count).Error; err != nil {
			log.Fatalf("Failed to count %s: %v", table, err)
		}
		fmt.Printf("📊 %-20s %d rows\n", table, count)
	}
	fmt.Println()

	// Per-room event stats with gap detection
	type RoomStats struct {
		RoomID     string
		EventCount int64
		MaxEventID int64
	}
	var stats []RoomStats
	query := `
		SELECT room_id, COUNT(*) as event_count, MAX(event_id) as max_event_id
		FROM room_events
		GROUP BY room_id
		ORDER BY event_count DESC
		LIMIT 20
	`
	if err := db.Raw(query).Scan(&stats).Error; err != nil {
		log.Fatal("Failed to get room stats:", err)
	}

	fmt.Println("📈 Room Event Statistics (top 20):")
	gaps := 0
	for _, s := range stats {
		marker := ""
		if s.EventCount != s.MaxEventID {
			marker = "  ⚠️ GAP: missing persisted events"
			gaps++
		}
		fmt.Printf("  - Room %s: %d events, max event_id %d%s\n",
			s.RoomID, s.EventCount, s.MaxEventID, marker)
	}
	fmt.Println()

	if gaps > 0 {
		fmt.Printf("⚠️  %d room(s) with persistence gaps (sink drops under load are expected)\n", gaps)
	} else {
		fmt.Println("✅ No persistence gaps detected")
	}
}
