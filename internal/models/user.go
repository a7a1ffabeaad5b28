package models

import (
	"fmt"
	"strings"
)

// UserRole 是封閉的角色集合
type UserRole string

const (
	RoleDoctor      UserRole = "DOCTOR"
	RoleRadiologist UserRole = "RADIOLOGIST"
	RoleNurse       UserRole = "NURSE"
	RoleDeveloper   UserRole = "DEVELOPER"
	RoleAdmin       UserRole = "ADMIN"
)

// Workspace 是角色對應的工作區
type Workspace string

const (
	WorkspaceClinical  Workspace = "clinical"
	WorkspaceTechnical Workspace = "technical"
)

// User 代表登入的使用者 (示範用途，不做真正驗證)
type User struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Role     UserRole `json:"role"`
	FullName string   `json:"fullName"`
}

// ParseUserRole 將字串轉換為 UserRole，不分大小寫；未知角色回傳錯誤
func ParseUserRole(s string) (UserRole, error) {
	role := UserRole(strings.ToUpper(strings.TrimSpace(s)))
	switch role {
	case RoleDoctor, RoleRadiologist, RoleNurse, RoleDeveloper, RoleAdmin:
		return role, nil
	}
	return "", fmt.Errorf("未知的使用者角色 '%s'", s)
}

// Workspace 依角色分派工作區
func (r UserRole) Workspace() Workspace {
	switch r {
	case RoleDeveloper, RoleAdmin:
		return WorkspaceTechnical
	default:
		return WorkspaceClinical
	}
}

// IsTechnical 是否屬於技術人員角色
func (r UserRole) IsTechnical() bool {
	return r.Workspace() == WorkspaceTechnical
}

// Menu 回傳工作區的側邊欄選單
func (w Workspace) Menu() []string {
	if w == WorkspaceTechnical {
		return []string{"Dashboard", "Dataset Management", "Model Training", "System Logs", "Config"}
	}
	return []string{"Dashboard", "New Upload", "Patient Records", "Reports"}
}
