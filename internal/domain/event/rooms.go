package event

import "strings"

// Well-known rooms every session may belong to.
const (
	RoomAll   = "all"
	RoomAdmin = "admin"
)

const (
	userRoomPrefix  = "user:"
	orderRoomPrefix = "order:"
)

// UserRoom returns the personal room of an identity.
func UserRoom(userID string) string { return userRoomPrefix + userID }

// OrderRoom returns the room that follows a single order.
func OrderRoom(orderID string) string { return orderRoomPrefix + orderID }

// ParseOrderRoom returns the order ID of an order room.
func ParseOrderRoom(room string) (string, bool) {
	id, ok := strings.CutPrefix(room, orderRoomPrefix)
	return id, ok && id != ""
}

// ParseUserRoom returns the identity ID of a personal room.
func ParseUserRoom(room string) (string, bool) {
	id, ok := strings.CutPrefix(room, userRoomPrefix)
	return id, ok && id != ""
}

// Rooms returns the rooms an event is addressed to, most specific first.
// Empty scope fields contribute no room.
func Rooms(e Event) []string {
	var rooms []string
	add := func(prefix, id string) {
		if id != "" {
			rooms = append(rooms, prefix+id)
		}
	}

	switch e.Type {
	case TypeOrderUpdated, TypeOrderStatusChanged, TypePaymentSucceeded, TypePaymentFailed:
		// Progress reaches only sessions that subscribed to the order.
		add(orderRoomPrefix, e.Scope.OrderID)
	case TypeOrderCreated, TypeOrderCancelled:
		add(orderRoomPrefix, e.Scope.OrderID)
		add(userRoomPrefix, e.Scope.UserID)
	case TypeNotification:
		add(userRoomPrefix, e.Scope.UserID)
	case TypeProductCreated, TypeProductUpdated, TypeProductDeleted:
		rooms = append(rooms, RoomAll)
	case TypeAdmin:
		rooms = append(rooms, RoomAdmin)
	}
	return rooms
}
