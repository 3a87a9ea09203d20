package sqlassets

import _ "embed"

//go:embed schema/platform/tenants.sql
var TenantsSQL string

//go:embed schema/platform/vendor_configs.sql
var VendorConfigsSQL string

//go:embed schema/platform/upload_ledger.sql
var UploadLedgerSQL string

//go:embed schema/tenant_space/sales_records.sql
var SalesRecordsSQL string
