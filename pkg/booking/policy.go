package booking

// Action enumerates the operations gated by the access policy.
type Action string

const (
	ActionBookSlot            Action = "book_slot"
	ActionCancelBooking       Action = "cancel_booking"
	ActionConfirmEvent        Action = "confirm_event"
	ActionDeleteEvent         Action = "delete_event"
	ActionUpdateConfiguration Action = "update_configuration"
	ActionSetRole             Action = "set_role"
	ActionSetBlocked          Action = "set_blocked"
	ActionDeleteAccount       Action = "delete_account"
	ActionListAccounts        Action = "list_accounts"
	ActionRefreshWeather      Action = "refresh_weather"
)

// Actor is the identity attempting an action.
type Actor struct {
	ID         AccountID
	Role       Role
	Superadmin bool
}

// Target is the account an action is aimed at, when there is one.
type Target struct {
	ID         AccountID
	Superadmin bool
}

// minimumRole is the permission table: the least role allowed to perform
// each action. Actions absent from the table are denied outright.
var minimumRole = map[Action]Role{
	ActionBookSlot:            RoleUser,
	ActionCancelBooking:       RoleUser,
	ActionConfirmEvent:        RoleAdmin,
	ActionDeleteEvent:         RoleAdmin,
	ActionUpdateConfiguration: RoleAdmin,
	ActionSetRole:             RoleAdmin,
	ActionSetBlocked:          RoleAdmin,
	ActionListAccounts:        RoleAdmin,
	ActionRefreshWeather:      RoleAdmin,
	ActionDeleteAccount:       RoleSuperadmin,
}

// ActorFor builds an Actor from a stored account.
func ActorFor(account Account) Actor {
	return Actor{ID: account.ID, Role: account.Role, Superadmin: account.Superadmin}
}

// TargetFor builds a Target from a stored account.
func TargetFor(account Account) Target {
	return Target{ID: account.ID, Superadmin: account.Superadmin}
}

// Can decides whether the actor may perform the action on the target. The
// function is pure: no store access, no clock, no side effects.
//
// Superadmin accounts are immune: no actor, superadmin included, may change
// their role, block them, or delete them. Account deletion is reserved to
// superadmins and never applies to the actor's own account.
func Can(actor Actor, action Action, target *Target) bool {
	required, known := minimumRole[action]
	if !known {
		return false
	}
	if actor.Role.rank() < required.rank() {
		return false
	}
	if target != nil && target.Superadmin {
		switch action {
		case ActionSetRole, ActionSetBlocked, ActionDeleteAccount:
			return false
		}
	}
	if action == ActionDeleteAccount && target != nil && target.ID == actor.ID {
		return false
	}
	return true
}
