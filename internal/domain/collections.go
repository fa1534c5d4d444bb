package domain

// Shared-store collection and field names. The users collection is keyed by
// normalized username; messages is append-only with store-assigned ids.
const (
	UsersCollection    = "users"
	MessagesCollection = "messages"

	PasswordField      = "password"
	SavedContactsField = "savedContacts"
	ParticipantsField  = "participants"
	CreatedAtField     = "createdAt"
)
