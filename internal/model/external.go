package model

import "time"

// The types below mirror the legacy master data tables.  They are read
// only; db tags name the logical column, which the external gateway maps
// to the physical column configured for the deployment.

// Company is a row of the company master.
type Company struct {
	CompanyCd string  `db:"company_cd" json:"company_cd"`
	CompanyNm *string `db:"company_nm" json:"company_nm"`
	CompanyKn *string `db:"company_kn" json:"company_kn"`
	PostCd    *string `db:"post_cd" json:"post_cd"`
	Address1  *string `db:"address1" json:"address1"`
	TelNo     *string `db:"tel_no" json:"tel_no"`
	DeleteFlg *string `db:"delete_flg" json:"-"`
}

// Customer is a row of the customer master.
type Customer struct {
	CustomerCd string  `db:"customer_cd" json:"customer_cd"`
	CompanyNm  *string `db:"company_nm" json:"company_nm"`
	CompanyAb  *string `db:"company_ab" json:"company_ab"`
	CompanyKn  *string `db:"company_kn" json:"company_kn"`
	PostCd     *string `db:"post_cd" json:"post_cd"`
	Address1   *string `db:"address1" json:"address1"`
	Address2   *string `db:"address2" json:"address2"`
	TelNo      *string `db:"tel_no" json:"tel_no"`
	FaxNo      *string `db:"fax_no" json:"fax_no"`
	DeleteFlg  *string `db:"delete_flg" json:"-"`
}

// CustomerContact is a contact person at a customer, keyed by the
// customer code and staff code pair.
type CustomerContact struct {
	CustomerCd  string  `db:"customer_cd" json:"customer_cd"`
	StaffCd     string  `db:"staff_cd" json:"staff_cd"`
	StaffNm     *string `db:"staff_nm" json:"staff_nm"`
	StaffKn     *string `db:"staff_kn" json:"staff_kn"`
	DeptNm      *string `db:"dept_nm" json:"dept_nm"`
	TelNo       *string `db:"tel_no" json:"tel_no"`
	MailAddress *string `db:"mail_address" json:"mail_address"`
	DeleteFlg   *string `db:"delete_flg" json:"-"`
}

// Staff is an internal staff member of the legacy system.
type Staff struct {
	SerialNo    string  `db:"serial_no" json:"serial_no"`
	StaffCd     string  `db:"staff_cd" json:"staff_cd"`
	StaffNm     *string `db:"staff_nm" json:"staff_nm"`
	StaffKn     *string `db:"staff_kn" json:"staff_kn"`
	DeptCd      *string `db:"dept_cd" json:"dept_cd"`
	MailAddress *string `db:"mail_address" json:"mail_address"`
	DeleteFlg   *string `db:"delete_flg" json:"-"`
}

// Estimate is a quotation header.
type Estimate struct {
	EstimateID   string     `db:"estimate_id" json:"estimate_id"`
	EstimateNo   *string    `db:"estimate_no" json:"estimate_no"`
	CustomerCd   *string    `db:"customer_cd" json:"customer_cd"`
	EstimateDate *time.Time `db:"estimate_date" json:"estimate_date"`
	Subject      *string    `db:"subject" json:"subject"`
	Amount       *float64   `db:"amount" json:"amount"`
	DeleteFlg    *string    `db:"delete_flg" json:"-"`
}

// Order is an order header.
type Order struct {
	OrderID    string     `db:"order_id" json:"order_id"`
	OrderNo    *string    `db:"order_no" json:"order_no"`
	CustomerCd *string    `db:"customer_cd" json:"customer_cd"`
	OrderDate  *time.Time `db:"order_date" json:"order_date"`
	Subject    *string    `db:"subject" json:"subject"`
	Amount     *float64   `db:"amount" json:"amount"`
	DeleteFlg  *string    `db:"delete_flg" json:"-"`
}

// OrderDetail is a bill-of-materials line of an order.
type OrderDetail struct {
	OrderID   string   `db:"order_id" json:"order_id"`
	OrderNo   string   `db:"order_no" json:"order_no"`
	DetailNo  int      `db:"detail_no" json:"detail_no"`
	ItemNm    *string  `db:"item_nm" json:"item_nm"`
	Quantity  *float64 `db:"quantity" json:"quantity"`
	UnitPrice *float64 `db:"unit_price" json:"unit_price"`
	Amount    *float64 `db:"amount" json:"amount"`
	DeleteFlg *string  `db:"delete_flg" json:"-"`
}
