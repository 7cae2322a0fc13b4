package models

type GreenHouse struct {
	GreenHouseID string   `gorm:"column:green_house_id;primaryKey;size:128" json:"green_house_id"`
	UserID       string   `gorm:"column:user_id;size:128;not null;index" json:"user_id"`
	Name         string   `gorm:"column:name;size:50;not null" json:"name"`
	Description  string   `gorm:"column:description;size:200" json:"description"`
	Location     string   `gorm:"column:location;size:100;not null" json:"location"`
	Area         float32  `gorm:"column:area;not null" json:"area"`
	Sensors      []Sensor `gorm:"foreignKey:GreenHouseID;references:GreenHouseID" json:"-"`
}

func (GreenHouse) TableName() string { return "green_houses" }
