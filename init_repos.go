package main

import (
	"github.com/akinalp/pitchline/database"
	"github.com/akinalp/pitchline/repository"
)

// Repositories, tüm repository instance'larını tutar.
type Repositories struct {
	Profile      repository.ProfileRepository
	Conversation repository.ConversationRepository
	Message      repository.MessageRepository
	Read         repository.ReadRepository
}

// initRepositories, tüm repository'leri aynı DB bağlantısı ile oluşturur.
func initRepositories(db *database.DB) *Repositories {
	return &Repositories{
		Profile:      repository.NewSQLiteProfileRepo(db.Conn),
		Conversation: repository.NewSQLiteConversationRepo(db.Conn),
		Message:      repository.NewSQLiteMessageRepo(db.Conn),
		Read:         repository.NewSQLiteReadRepo(db.Conn),
	}
}
