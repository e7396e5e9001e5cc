package auth

import "github.com/hitoshi/fonomed/internal/model"

// 操作ごとに要求されるロール集合
var (
	// Staff は言語聴覚士と管理者。
	Staff = []model.Role{model.RoleTherapist, model.RoleAdmin}
	// AdminOnly は管理者のみ。
	AdminOnly = []model.Role{model.RoleAdmin}
)

// Allowed はroleがrequiredのいずれかに含まれるかを返す。
// 権限判定はすべてこの関数を通す。未定義のロールは常に拒否する。
func Allowed(role model.Role, required ...model.Role) bool {
	if !role.Valid() {
		return false
	}
	for _, r := range required {
		if r == role {
			return true
		}
	}
	return false
}
