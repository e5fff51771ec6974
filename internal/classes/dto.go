package classes

// POST /classes, PUT /classes/:id
type ClassRequest struct {
	Name           string  `json:"name" binding:"required"`
	TeacherName    *string `json:"teacher_name,omitempty"`
	TeacherNIP     *string `json:"teacher_nip,omitempty"`
	HeadmasterName *string `json:"headmaster_name,omitempty"`
	HeadmasterNIP  *string `json:"headmaster_nip,omitempty"`
}

type ListResponse struct {
	Items []Class `json:"items"`
	Total int     `json:"total"`
}
