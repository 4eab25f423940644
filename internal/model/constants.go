package model

// Role 룸 내 유저의 유효 권한
type Role string

const (
	RoleNone  Role = "none"
	RoleView  Role = "view"
	RoleEdit  Role = "edit"
	RoleAdmin Role = "admin"
)

// String 메서드
func (r Role) String() string {
	return string(r)
}

// CanView 읽기 가능 여부
func (r Role) CanView() bool {
	return r == RoleView || r == RoleEdit || r == RoleAdmin
}

// CanEdit 그리기 가능 여부
func (r Role) CanEdit() bool {
	return r == RoleEdit || r == RoleAdmin
}

// CanAdmin 관리 가능 여부
func (r Role) CanAdmin() bool {
	return r == RoleAdmin
}

// ParseRole 저장된 권한 문자열을 Role로 변환 (알 수 없는 값은 none)
func ParseRole(s string) Role {
	switch s {
	case "view":
		return RoleView
	case "edit":
		return RoleEdit
	case "admin":
		return RoleAdmin
	default:
		return RoleNone
	}
}
