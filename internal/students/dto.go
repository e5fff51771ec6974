package students

type CreateStudentRequest struct {
	Name      string `json:"name" binding:"required"`
	NIS       string `json:"nis" binding:"required"`
	ClassName string `json:"class_name" binding:"required"`
}

// PUT /students/:id: status を省略すると現状維持
type UpdateStudentRequest struct {
	Name      string `json:"name" binding:"required"`
	NIS       string `json:"nis" binding:"required"`
	ClassName string `json:"class_name" binding:"required"`
	Status    *bool  `json:"status,omitempty"`
}

type ListResponse struct {
	Items []Student `json:"items"`
	Total int       `json:"total"`
}
