package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/venue-enrich/internal/model"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the venue table to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate(); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		venues, err := st.All(ctx)
		if err != nil {
			return err
		}

		if err := writeWorkbook(exportOut, venues); err != nil {
			return err
		}
		zap.L().Info("export complete",
			zap.String("path", exportOut), zap.Int("rows", len(venues)))
		return nil
	},
}

var exportHeader = []string{
	"entity_id", "name", "domain", "city", "country",
	"ticket_vendor", "ticket_vendor_source",
	"capacity", "capacity_source",
	"avg_ticket_price", "avg_ticket_price_source",
	"annual_revenue", "annual_revenue_source",
	"segment", "enrichment_status", "notes", "last_updated",
}

func writeWorkbook(path string, venues []model.Venue) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Venues")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range exportHeader {
		header.AddCell().Value = h
	}

	for _, v := range venues {
		row := sheet.AddRow()
		row.AddCell().Value = v.EntityID
		row.AddCell().Value = v.Name
		row.AddCell().Value = v.Domain
		row.AddCell().Value = v.City
		row.AddCell().Value = v.Country

		addOptString(row, v.TicketVendor)
		row.AddCell().Value = v.TicketVendorSource
		addOptInt(row, v.Capacity)
		row.AddCell().Value = v.CapacitySource
		addOptFloat(row, v.AvgTicketPrice)
		row.AddCell().Value = v.AvgTicketPriceSource
		addOptFloat(row, v.AnnualRevenue)
		row.AddCell().Value = v.AnnualRevenueSource

		if v.AnnualRevenue != nil {
			row.AddCell().Value = model.Segment(*v.AnnualRevenue)
		} else {
			row.AddCell()
		}
		row.AddCell().Value = string(v.EnrichmentStatus)
		row.AddCell().Value = v.Notes
		if v.LastUpdated != nil {
			row.AddCell().Value = v.LastUpdated.UTC().Format("2006-01-02 15:04:05")
		} else {
			row.AddCell()
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "export: save workbook")
	}
	return nil
}

func addOptString(row *xlsx.Row, v *string) {
	cell := row.AddCell()
	if v != nil {
		cell.Value = *v
	}
}

func addOptInt(row *xlsx.Row, v *int64) {
	cell := row.AddCell()
	if v != nil {
		cell.SetInt64(*v)
	}
}

func addOptFloat(row *xlsx.Row, v *float64) {
	cell := row.AddCell()
	if v != nil {
		cell.SetFloat(*v)
	}
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "venues.xlsx", "output workbook path")
	rootCmd.AddCommand(exportCmd)
}
