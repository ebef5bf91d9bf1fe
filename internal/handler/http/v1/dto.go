package v1

import (
	"time"
)

// SubmitReportRequest DTO для отправки отчета об инциденте
// @Description DTO для отправки отчета об инциденте
type SubmitReportRequest struct {
	Category    string   `json:"category" validate:"required,oneof=harassment stalking theft unsafe_area poor_lighting suspicious_activity other"`
	Description string   `json:"description" validate:"required,max=2000"`
	Severity    string   `json:"severity" validate:"required,oneof=low medium high critical"`
	Latitude    *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude   *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
	Accuracy    *float64 `json:"accuracy,omitempty" validate:"omitempty,gte=0"`
	ImageRef    string   `json:"image_ref,omitempty" validate:"omitempty,max=512"`
	Anonymous   bool     `json:"anonymous"`
}

// ReportResponse DTO для ответа с информацией об отчете
// @Description DTO для ответа с информацией об отчете
type ReportResponse struct {
	ID               string    `json:"id"`
	Category         string    `json:"category"`
	Description      string    `json:"description"`
	Severity         string    `json:"severity"`
	Latitude         *float64  `json:"latitude,omitempty"`
	Longitude        *float64  `json:"longitude,omitempty"`
	CellID           string    `json:"cell_id,omitempty"`
	ImageRef         string    `json:"image_ref,omitempty"`
	Anonymous        bool      `json:"anonymous"`
	Verification     string    `json:"verification"`
	Version          int64     `json:"version"`
	HeatmapIntensity float64   `json:"heatmap_intensity"`
	CreatedAt        time.Time `json:"created_at"`
}

// SetVerificationRequest DTO для решения модератора
// @Description DTO для решения модератора
type SetVerificationRequest struct {
	Verification string `json:"verification" validate:"required,oneof=pending verified rejected"`
}

// RegionQuery задает область одним из способов: список ячеек, прямоугольник или центр с радиусом
// @Description Область поверхности риска
type RegionQuery struct {
	Cells  []string `json:"cells,omitempty" form:"cells" validate:"omitempty,dive,required"`
	MinLat *float64 `json:"min_lat,omitempty" form:"min_lat" validate:"omitempty,latitude"`
	MinLon *float64 `json:"min_lon,omitempty" form:"min_lon" validate:"omitempty,longitude"`
	MaxLat *float64 `json:"max_lat,omitempty" form:"max_lat" validate:"omitempty,latitude"`
	MaxLon *float64 `json:"max_lon,omitempty" form:"max_lon" validate:"omitempty,longitude"`
	Lat    *float64 `json:"lat,omitempty" form:"lat" validate:"omitempty,latitude"`
	Lon    *float64 `json:"lon,omitempty" form:"lon" validate:"omitempty,longitude"`
	Radius float64  `json:"radius,omitempty" form:"radius" validate:"omitempty,gt=0,lte=100000"`
}

// SubscribeMessage - первое сообщение клиента в WebSocket-соединении
// @Description Подписка на дельты ячеек; epoch и last_seen передаются при переподключении
type SubscribeMessage struct {
	RegionQuery
	Epoch    string           `json:"epoch,omitempty"`
	LastSeen map[string]int64 `json:"last_seen,omitempty"`
}

// RiskCellResponse DTO состояния ячейки
// @Description DTO состояния ячейки
type RiskCellResponse struct {
	CellID      string    `json:"cell_id"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Score       float64   `json:"score"`
	ReportCount int       `json:"report_count"`
	Version     int64     `json:"version"`
	State       string    `json:"state"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SurfaceResponse DTO поверхности риска
// @Description DTO поверхности риска
type SurfaceResponse struct {
	Epoch string             `json:"epoch"`
	Cells []RiskCellResponse `json:"cells"`
}

// LocationCheckRequest DTO для проверки координат
// @Description DTO для проверки координат
type LocationCheckRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
}

// LocationCheckResponse DTO для ответа о риске в точке
// @Description DTO для ответа о риске в точке
type LocationCheckResponse struct {
	Level  string             `json:"level"`
	Cell   RiskCellResponse   `json:"cell"`
	Nearby []RiskCellResponse `json:"nearby"`
}

// TriggerSOSRequest DTO для SOS-тревоги; без координат используется последнее известное местоположение
// @Description DTO для SOS-тревоги
type TriggerSOSRequest struct {
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty" validate:"omitempty,gte=0"`
}

// DeliveryResponse DTO результата доставки одному контакту
// @Description DTO результата доставки одному контакту
type DeliveryResponse struct {
	Name     string    `json:"name"`
	Phone    string    `json:"phone"`
	Status   string    `json:"status"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error,omitempty"`
	Late     bool      `json:"late,omitempty"`
	At       time.Time `json:"updated_at"`
}

// AlertResponse DTO SOS-тревоги с разбивкой по контактам
// @Description DTO SOS-тревоги с разбивкой по контактам
type AlertResponse struct {
	ID             string             `json:"id"`
	LocationStatus string             `json:"location_status"`
	Latitude       *float64           `json:"latitude,omitempty"`
	Longitude      *float64           `json:"longitude,omitempty"`
	Delivered      int                `json:"delivered"`
	Failed         int                `json:"failed"`
	Deliveries     []DeliveryResponse `json:"deliveries"`
	CreatedAt      time.Time          `json:"created_at"`
	FinalizedAt    *time.Time         `json:"finalized_at,omitempty"`
}

// ContactDTO DTO доверенного контакта
// @Description DTO доверенного контакта
type ContactDTO struct {
	Name  string `json:"name" validate:"required,max=100"`
	Phone string `json:"phone" validate:"required,e164"`
}

// ReplaceContactsRequest DTO для замены списка доверенных контактов
// @Description DTO для замены списка доверенных контактов
type ReplaceContactsRequest struct {
	Contacts []ContactDTO `json:"contacts" validate:"max=10,dive"`
}

// ContactsResponse DTO списка доверенных контактов
// @Description DTO списка доверенных контактов
type ContactsResponse struct {
	Contacts []ContactDTO `json:"contacts"`
}

// LocationUpdateRequest DTO фикса местоположения от клиента
// @Description DTO фикса местоположения от клиента
type LocationUpdateRequest struct {
	Permission string   `json:"permission" validate:"required,oneof=granted denied"`
	Latitude   *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude  *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
	Accuracy   *float64 `json:"accuracy,omitempty" validate:"omitempty,gte=0"`
}
