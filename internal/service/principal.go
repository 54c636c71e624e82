package service

// Principal 已认证的调用方，由 JWT 中间件解析得到
type Principal struct {
	UserID  int64
	Email   string
	IsStaff bool
}

func (p Principal) Owns(ownerID int64) bool {
	return p.UserID == ownerID
}
