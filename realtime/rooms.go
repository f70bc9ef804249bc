package realtime

// Room events share the channel with notification pushes and power the
// chat-style features of the portal.

type roomPayload struct {
	Room string `json:"room"`
}

type messagePayload struct {
	Room    string `json:"room"`
	Message string `json:"message"`
}

func (c *Channel) JoinRoom(room string) {
	c.Emit("join_room", roomPayload{Room: room})
}

func (c *Channel) LeaveRoom(room string) {
	c.Emit("leave_room", roomPayload{Room: room})
}

func (c *Channel) SendMessage(room, message string) {
	c.Emit("send_message", messagePayload{Room: room, Message: message})
}
