package handlers

import (
	"NCDEarlyDetect/internal/models"
	"log"
	"net/http"
)

// RoleHeader 攜帶使用者角色。目前不做身分驗證，直接信任此標頭。
const RoleHeader = "X-User-Role"

// WorkspaceHandler 提供角色工作區、共用常數與技術工作區資料
type WorkspaceHandler struct {
	appName string
}

func NewWorkspaceHandler(appName string) *WorkspaceHandler {
	return &WorkspaceHandler{appName: appName}
}

type metaResponse struct {
	AppName    string   `json:"appName"`
	Disclaimer string   `json:"disclaimer"`
	Modalities []string `json:"modalities"`
}

type workspaceResponse struct {
	Role      models.UserRole  `json:"role"`
	Workspace models.Workspace `json:"workspace"`
	Menu      []string         `json:"menu"`
}

// Health 回應存活檢查
func (h *WorkspaceHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Meta 回傳免責聲明與可選的影像模態
func (h *WorkspaceHandler) Meta(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, metaResponse{
		AppName:    h.appName,
		Disclaimer: models.MedicalDisclaimer,
		Modalities: models.Modalities,
	})
}

func roleFromRequest(r *http.Request) (models.UserRole, error) {
	return models.ParseUserRole(r.Header.Get(RoleHeader))
}

// Workspace 依角色回傳工作區與選單
func (h *WorkspaceHandler) Workspace(w http.ResponseWriter, r *http.Request) {
	role, err := roleFromRequest(r)
	if err != nil {
		log.Printf("警告：[WorkspaceHandler] %v", err)
		writeErrorKind(w, http.StatusBadRequest, KindInvalidInput, err.Error())
		return
	}
	ws := role.Workspace()
	writeJSON(w, http.StatusOK, workspaceResponse{Role: role, Workspace: ws, Menu: ws.Menu()})
}

// TrainingJobs 僅技術人員角色可查看
func (h *WorkspaceHandler) TrainingJobs(w http.ResponseWriter, r *http.Request) {
	role, err := roleFromRequest(r)
	if err != nil {
		writeErrorKind(w, http.StatusBadRequest, KindInvalidInput, err.Error())
		return
	}
	if !role.IsTechnical() {
		log.Printf("警告：[WorkspaceHandler] 角色 %s 嘗試存取訓練任務，已拒絕。", role)
		writeErrorKind(w, http.StatusForbidden, KindForbidden, "僅技術人員可查看模型訓練任務")
		return
	}
	writeJSON(w, http.StatusOK, models.MockTrainingJobs())
}
