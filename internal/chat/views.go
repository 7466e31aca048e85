package chat

import (
	"jabbr/internal/broadcast"
	"jabbr/internal/models"
)

func userView(u *models.User) broadcast.UserView {
	return broadcast.UserView{
		Name:         u.Name,
		Status:       u.Status,
		IsAfk:        u.IsAfk,
		AfkNote:      u.AfkNote,
		Note:         u.Note,
		LastActivity: u.LastActivity,
	}
}

func messageView(m *models.Message, author *models.User) broadcast.MessageView {
	return broadcast.MessageView{
		ID:      m.ID,
		Content: m.Content,
		User:    userView(author),
		When:    m.When,
	}
}
