package main

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/quocanhngo/tripzi/internal/config"
	"github.com/quocanhngo/tripzi/internal/dedup"
	"github.com/quocanhngo/tripzi/internal/model"
	"github.com/quocanhngo/tripzi/internal/repository"
	"github.com/quocanhngo/tripzi/internal/service"
	"github.com/quocanhngo/tripzi/migrations"
	"github.com/quocanhngo/tripzi/pkg/logger"
)

var travelers = []struct {
	name string
	city string
}{
	{"Minh Tran", "Ha Noi"},
	{"Ngoc Le", "Da Nang"},
	{"Phuc Nguyen", "Hue"},
	{"Lan Pham", "Hoi An"},
	{"Khoa Vo", "Da Lat"},
	{"Thao Do", "Can Tho"},
}

func main() {
	cfg := config.Load()
	logger.Setup(cfg.App.Env)
	ctx := context.Background()

	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to connect to database")
	}
	if err := migrations.Run(cfg.DB.URL()); err != nil {
		log.WithError(err).Fatal("❌ Failed to migrate profile schema")
	}
	users := repository.NewUserRepository(db)

	log.Infof("🌱 Seeding %d travelers...", len(travelers))
	seeded := make([]*model.User, 0, len(travelers))
	for i, t := range travelers {
		u := &model.User{
			ID:          fmt.Sprintf("seed-traveler-%d", i+1),
			DisplayName: t.name,
			Email:       fmt.Sprintf("traveler%d@tripzi.local", i+1),
			PhotoURL:    "https://api.dicebear.com/7.x/avataaars/svg?seed=" + t.city,
			Role:        "traveler",
		}
		if err := users.Upsert(ctx, u); err != nil {
			log.WithError(err).WithField("user_id", u.ID).Error("❌ Failed to seed traveler")
			continue
		}
		seeded = append(seeded, u)
	}

	if cfg.Store.Driver != config.StoreFirestore {
		log.Info("🎉 Seeded profiles only: the chat store is not persistent")
		return
	}
	if len(seeded) < 3 {
		log.Warn("⚠️  Not enough travelers for the demo chats")
		return
	}
	seedChats(ctx, cfg, users, seeded)
	log.Info("🎉 Seeding completed!")
}

// seedChats creates a demo group and a direct chat in Firestore
func seedChats(ctx context.Context, cfg *config.Config, users *repository.UserRepository, seeded []*model.User) {
	var opts []option.ClientOption
	if cfg.Firebase.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.Firebase.ProjectID}, opts...)
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to initialize Firebase")
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to connect to Firestore")
	}
	defer client.Close()

	convRepo := repository.NewConversationRepository(client)
	chats := service.NewChatService(convRepo, users)
	messages := service.NewMessageService(convRepo, repository.NewMessageRepository(client),
		dedup.NewMemoryRegistry(cfg.Dedup.Window, nil), nil, nil, nil, cfg.Chat.DeleteWindow)

	admin := seeded[0]
	memberIDs := make([]string, 0, len(seeded)-1)
	for _, u := range seeded[1:] {
		memberIDs = append(memberIDs, u.ID)
	}
	group, err := chats.CreateGroup(ctx, admin, model.CreateGroupRequest{
		Name:      "Central Vietnam Road Trip",
		Icon:      "https://api.dicebear.com/7.x/initials/svg?seed=CV",
		MemberIDs: memberIDs,
	})
	if err != nil {
		log.WithError(err).Error("❌ Failed to create demo group")
	} else if _, err := messages.SendText(ctx, group, admin.Sender(), "Welcome aboard! Itinerary is pinned in the trip tab 🧳", nil); err != nil {
		log.WithError(err).Warn("⚠️  Failed to post welcome message")
	} else {
		log.WithField("conversation_id", group.ID).Info("✅ Created demo group")
	}

	direct, _, err := chats.GetOrCreateDirect(ctx, seeded[1], seeded[2].ID)
	if err != nil {
		log.WithError(err).Error("❌ Failed to create demo direct chat")
		return
	}
	if _, err := messages.SendLocation(ctx, direct, seeded[1].Sender(), model.GeoPoint{
		Latitude:  16.0678,
		Longitude: 108.2208,
		Address:   "Dragon Bridge, Da Nang",
	}); err != nil {
		log.WithError(err).Warn("⚠️  Failed to post demo location")
	}
	log.WithField("conversation_id", direct.ID).Info("✅ Created demo direct chat")
}
