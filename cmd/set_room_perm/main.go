package main

import (
	"flag"
	"log"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"whiteboard-backend/internal/database"
	"whiteboard-backend/internal/model"
)

// Maintenance tool: set or remove a user's permission in a room without
// going through the API. Live sessions pick the change up on their next
// periodic role refresh.
func main() {
	roomID := flag.String("room", "", "room UUID")
	userID := flag.Int64("user", 0, "user id")
	perm := flag.String("perm", "", "permission: none, view, edit, admin")
	flag.Parse()

	if *roomID == "" || *userID == 0 || *perm == "" {
		flag.Usage()
		log.Fatal("room, user and perm are required")
	}
	role := model.ParseRole(*perm)
	if role == model.RoleNone && *perm != model.RoleNone.String() {
		log.Fatalf("Invalid permission %q", *perm)
	}

	// Load environment variables
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	db, err := database.ConnectDB()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		var room model.Room
		if err := tx.Where("id = ?", *roomID).First(&room).Error; err != nil {
			return err
		}

		if role == model.RoleNone {
			log.Printf("Removing user %d from room %s", *userID, room.ID)
			return tx.Where("room_id = ? AND user_id = ?", room.ID, *userID).
				Delete(&model.RoomParticipant{}).Error
		}

		participant := model.RoomParticipant{
			RoomID:     room.ID,
			UserID:     *userID,
			Permission: role.String(),
		}
		result := tx.Model(&model.RoomParticipant{}).
			Where("room_id = ? AND user_id = ?", room.ID, *userID).
			Update("permission", role.String())
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			log.Printf("User %d not in room %s, creating participant row", *userID, room.ID)
			return tx.Create(&participant).Error
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to set permission: %v", err)
	}

	log.Printf("User %d permission in room %s set to %s", *userID, *roomID, role)
}
